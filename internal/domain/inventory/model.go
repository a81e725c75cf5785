package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type MoveType string

const (
	MoveIn     MoveType = "in"
	MoveOut    MoveType = "out"
	MoveAdjust MoveType = "adjust" // инвентаризация из Excel
)

type Movement struct {
	ID        int64
	CreatedAt time.Time
	Actor     string
	Material  string
	Qty       decimal.Decimal // со знаком: приход > 0, списание < 0, adjust — разница
	Type      MoveType
	Note      string
	RecordID  *int64 // партия, если списание по производству
}

// Deduction — сколько списать с материала.
type Deduction struct {
	Material string
	Qty      decimal.Decimal
}

var (
	ErrNonPositiveQty  = errors.New("qty must be > 0")
	ErrNegativeQty     = errors.New("qty must be >= 0")
	ErrUnknownMaterial = errors.New("unknown material")
)
