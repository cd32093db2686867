package enums

// ReturnRequestStatus tracks a customer return linked to an order.
type ReturnRequestStatus string

const (
	ReturnRequestStatusRequested ReturnRequestStatus = "REQUESTED"
	ReturnRequestStatusApproved  ReturnRequestStatus = "APPROVED"
	ReturnRequestStatusCompleted ReturnRequestStatus = "COMPLETED"
	ReturnRequestStatusRejected  ReturnRequestStatus = "REJECTED"
)

var returnRequestStatuses = newSet("return request status",
	ReturnRequestStatusRequested,
	ReturnRequestStatusApproved,
	ReturnRequestStatusCompleted,
	ReturnRequestStatusRejected,
)

func (s ReturnRequestStatus) String() string {
	return string(s)
}

func (s ReturnRequestStatus) IsValid() bool {
	return returnRequestStatuses.has(s)
}

func ParseReturnRequestStatus(value string) (ReturnRequestStatus, error) {
	return returnRequestStatuses.parse(value)
}
