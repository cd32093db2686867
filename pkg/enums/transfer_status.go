package enums

// TransferStatus tracks a warehouse-to-warehouse stock transfer.
type TransferStatus string

const (
	TransferStatusRequested TransferStatus = "REQUESTED"
	TransferStatusApproved  TransferStatus = "APPROVED"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

var transferStatuses = newSet("transfer status",
	TransferStatusRequested,
	TransferStatusApproved,
	TransferStatusCompleted,
	TransferStatusCancelled,
)

func (s TransferStatus) String() string {
	return string(s)
}

func (s TransferStatus) IsValid() bool {
	return transferStatuses.has(s)
}

// IsFinal reports whether the transfer already left the open states.
func (s TransferStatus) IsFinal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCancelled
}

func ParseTransferStatus(value string) (TransferStatus, error) {
	return transferStatuses.parse(value)
}
