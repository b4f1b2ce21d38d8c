package crm

import "encoding/json"

// Agency is one row of the agency list query.
type Agency struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Attributes is the sObject metadata block.
type Attributes struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Address is a compound address field.
type Address struct {
	Street          *string  `json:"street"`
	City            *string  `json:"city"`
	State           *string  `json:"state"`
	PostalCode      *string  `json:"postalCode"`
	Country         *string  `json:"country"`
	GeocodeAccuracy *string  `json:"geocodeAccuracy"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

// Account holds the standard Account fields the portal shows. Custom
// fields are only available through Raw.
type Account struct {
	Attributes        Attributes `json:"attributes"`
	ID                string     `json:"Id"`
	IsDeleted         bool       `json:"IsDeleted"`
	Name              string     `json:"Name"`
	Type              string     `json:"Type"`
	ParentID          *string    `json:"ParentId"`
	BillingAddress    *Address   `json:"BillingAddress"`
	ShippingAddress   *Address   `json:"ShippingAddress"`
	Phone             string     `json:"Phone"`
	Fax               *string    `json:"Fax"`
	Website           string     `json:"Website"`
	Industry          string     `json:"Industry"`
	NumberOfEmployees int        `json:"NumberOfEmployees"`
	Description       *string    `json:"Description"`
	OwnerID           string     `json:"OwnerId"`
	CreatedDate       string     `json:"CreatedDate"`
	LastModifiedDate  string     `json:"LastModifiedDate"`

	Raw json.RawMessage `json:"-"`
}

type accountFields Account

func (a *Account) UnmarshalJSON(data []byte) error {
	var f accountFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Account(f)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (a Account) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	return json.Marshal(accountFields(a))
}

type queryResult[T any] struct {
	TotalSize int  `json:"totalSize"`
	Done      bool `json:"done"`
	Records   []T  `json:"records"`
}
