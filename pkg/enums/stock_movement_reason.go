package enums

// StockMovementReason labels each row of the stock movement journal.
type StockMovementReason string

const (
	StockMovementOrderCommit     StockMovementReason = "order_commit"
	StockMovementOrderRelease    StockMovementReason = "order_release"
	StockMovementTransferReserve StockMovementReason = "transfer_reserve"
	StockMovementTransferRelease StockMovementReason = "transfer_release"
	StockMovementTransferCredit  StockMovementReason = "transfer_credit"
	StockMovementAdjustment      StockMovementReason = "adjustment"
)

var stockMovementReasons = newSet("stock movement reason",
	StockMovementOrderCommit,
	StockMovementOrderRelease,
	StockMovementTransferReserve,
	StockMovementTransferRelease,
	StockMovementTransferCredit,
	StockMovementAdjustment,
)

func (r StockMovementReason) String() string {
	return string(r)
}

func (r StockMovementReason) IsValid() bool {
	return stockMovementReasons.has(r)
}

func ParseStockMovementReason(value string) (StockMovementReason, error) {
	return stockMovementReasons.parse(value)
}
