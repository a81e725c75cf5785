package safety

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseCodes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"H226, h317 P210", []string{"H226", "H317", "P210"}},
		{"h226;H226", []string{"H226"}},
		{"-", nil},
		{"  ", nil},
		{"p301+p310", []string{"P301+P310"}},
	}
	for _, tt := range tests {
		if got := ParseCodes(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCodes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPick(t *testing.T) {
	all := []Phrase{
		{Kind: KindHazard, Code: "H226", Text: "a"},
		{Kind: KindHazard, Code: "H317", Text: "b"},
	}
	got, err := Pick(all, []string{"H317", "h226"})
	if err != nil || len(got) != 2 || got[0].Code != "H317" {
		t.Errorf("Pick = %+v, %v", got, err)
	}

	_, err = Pick(all, []string{"H400"})
	var unknown *UnknownPhraseError
	if !errors.As(err, &unknown) || unknown.Code != "H400" || !errors.Is(err, ErrUnknownPhrase) {
		t.Errorf("err = %v", err)
	}
}

func TestPhraseValidate(t *testing.T) {
	if err := (Phrase{Kind: "X", Code: "H1"}).Validate(); !errors.Is(err, ErrBadKind) {
		t.Errorf("kind err = %v", err)
	}
	if err := (Phrase{Kind: KindPrecaution, Code: " "}).Validate(); !errors.Is(err, ErrEmptyCode) {
		t.Errorf("code err = %v", err)
	}
}
