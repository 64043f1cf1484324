package customers

import "time"

// Customer is an organisation's buyer record referenced by orders.
type Customer struct {
	ID             int64     `json:"id"`
	OrganisationID int64     `json:"organisation_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Address        *string   `json:"address,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
