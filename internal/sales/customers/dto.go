package customers

type CreateCustomerRequest struct {
	Code    string  `json:"code,omitempty" validate:"omitempty,max=50"`
	Name    string  `json:"name" validate:"required,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Notes   *string `json:"notes,omitempty"`
}

type ListCustomersRequest struct {
	OrganisationID int64
	Search         string
	Limit          int
	Offset         int
}
