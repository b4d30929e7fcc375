package types

// Slug is a type for the slug field in the response
// It is mainly used for the client to understand the type of the response
type Slug string

// Response slugs
const (
	SuccessSlug              Slug = "success"
	InvalidInputSlug         Slug = "invalid-input"
	InsufficientCapacitySlug Slug = "insufficient-capacity"
	ServerErrorSlug          Slug = "server-error"
)

// SlugResponse is the response type for the API
type SlugResponse struct {
	Slug  Slug        `json:"slug"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrInvalidInput returns a SlugResponse with the InvalidInputSlug and the error message
func ErrInvalidInput(msg string) SlugResponse {
	return SlugResponse{
		Slug:  InvalidInputSlug,
		Error: msg,
	}
}

// ErrServer returns a SlugResponse with the ServerErrorSlug and the error message
func ErrServer(msg string) SlugResponse {
	return SlugResponse{
		Slug:  ServerErrorSlug,
		Error: msg,
	}
}

// Success returns a SlugResponse with the SuccessSlug and the data
func Success(data interface{}) SlugResponse {
	return SlugResponse{
		Slug: SuccessSlug,
		Data: data,
	}
}

// QuantityRequest is the body of deploy and start requests
type QuantityRequest struct {
	// Instances per region
	Quantity int `json:"quantity"`
}

// PaginationResponse represents pagination information for list endpoints
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse defines a generic response structure for listing resources
type ListResponse[T any] struct {
	Rows       []T                `json:"rows"`
	Pagination PaginationResponse `json:"pagination"`
}
