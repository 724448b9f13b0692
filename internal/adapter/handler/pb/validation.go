package pb

type CartLine struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Image    string `json:"image"`
	Quantity int32  `json:"quantity"`
}

type ValidateRequest struct {
	Items     []*CartLine `json:"items"`
	SessionId string      `json:"sessionId,omitempty"`
	UserId    string      `json:"userId,omitempty"`
}

func (x *ValidateRequest) GetItems() []*CartLine {
	if x == nil {
		return nil
	}
	return x.Items
}

func (x *ValidateRequest) GetSessionId() string {
	if x == nil {
		return ""
	}
	return x.SessionId
}

func (x *ValidateRequest) GetUserId() string {
	if x == nil {
		return ""
	}
	return x.UserId
}

type ValidateResponse struct {
	IsValid         bool     `json:"isValid"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Suggestions     []string `json:"suggestions"`
	MaxAllowedItems int32    `json:"maxAllowedItems"`
	MaxAllowedPrice string   `json:"maxAllowedPrice"`
}

type StatsRequest struct{}

type ErrorCount struct {
	Error string `json:"error"`
	Count int32  `json:"count"`
}

type StatsResponse struct {
	TotalValidations int64             `json:"totalValidations"`
	SuccessRate      float64           `json:"successRate"`
	CommonErrors     []*ErrorCount     `json:"commonErrors"`
	LastValidation   *ValidateResponse `json:"lastValidation,omitempty"`
}

func (x *StatsResponse) GetLastValidation() *ValidateResponse {
	if x == nil {
		return nil
	}
	return x.LastValidation
}
