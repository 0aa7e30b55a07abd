package api

import (
	"bytes"
	"encoding/json"
)

// envelope is the wrapper every shopping-list endpoint puts its payload in.
type envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// User is the account record returned by register/login and the dashboard.
type User struct {
	ID          string       `json:"id,omitempty"`
	Email       string       `json:"email,omitempty"`
	Username    string       `json:"username,omitempty"`
	FirstName   string       `json:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// Preferences are optional shopping defaults attached to a user.
type Preferences struct {
	DefaultStore string `json:"defaultStore,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	Password    string       `json:"password"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// LoginRequest is the body of POST /api/auth/login. Identifier is an email
// or a username.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// AuthPayload is returned by register and login.
type AuthPayload struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Category is a catalogue category. The service may return plain strings or
// objects; both decode into a Category.
type Category struct {
	ID   string
	Name string
	raw  json.RawMessage
}

// UnmarshalJSON accepts "name" or {"id":..,"name":..}.
func (c *Category) UnmarshalJSON(b []byte) error {
	c.raw = append(c.raw[:0], b...)
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &c.Name)
	}
	var obj struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	c.Name = obj.Name
	if obj.ID != nil {
		c.ID = jsonScalar(obj.ID)
	}
	return nil
}

// MarshalJSON writes the category back in the shape it was received.
func (c Category) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	return json.Marshal(c.Name)
}

// Label is the text shown when listing categories.
func (c Category) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if len(c.raw) > 0 {
		return string(c.raw)
	}
	return c.ID
}

// Value is what gets sent as the category query parameter.
func (c Category) Value() string {
	if c.Name != "" {
		return c.Name
	}
	if c.ID != "" {
		return c.ID
	}
	return string(c.raw)
}

// Item is a catalogue item.
type Item struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	AveragePrice *float64 `json:"averagePrice,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// ItemQuery filters GET /api/items. Zero values are omitted.
type ItemQuery struct {
	Category string
	Limit    int
}

// NewList is the body of POST /api/lists.
type NewList struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AddItem is the body of POST /api/lists/{id}/items.
type AddItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// ListItem is an entry of a shopping list.
type ListItem struct {
	ItemID    string   `json:"itemId,omitempty"`
	ItemName  string   `json:"itemName,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Price     *float64 `json:"estimatedPrice,omitempty"`
	Purchased bool     `json:"purchased,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// ListSummary is the aggregate block of a shopping list.
type ListSummary struct {
	TotalItems     *int     `json:"totalItems,omitempty"`
	PurchasedItems *int     `json:"purchasedItems,omitempty"`
	EstimatedTotal *float64 `json:"estimatedTotal,omitempty"`
}

// List is a shopping list.
type List struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	Items       []ListItem   `json:"items,omitempty"`
	Summary     *ListSummary `json:"summary,omitempty"`
}

// Statistics is the dashboard aggregate.
type Statistics struct {
	TotalLists     *int     `json:"totalLists,omitempty"`
	ActiveLists    *int     `json:"activeLists,omitempty"`
	CompletedLists *int     `json:"completedLists,omitempty"`
	TotalEstimated *float64 `json:"totalEstimated,omitempty"`
}

// Dashboard is the payload of GET /api/dashboard.
type Dashboard struct {
	User        *User       `json:"user,omitempty"`
	Statistics  *Statistics `json:"statistics,omitempty"`
	RecentLists []List      `json:"recentLists,omitempty"`
}

// SearchResults is the payload of GET /api/search. A nil slice means the
// service did not include that section.
type SearchResults struct {
	Items []Item `json:"items,omitempty"`
	Lists []List `json:"lists,omitempty"`
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
