package case_api_client

const (
	// Base URL
	DefaultBaseURL = "http://localhost:8081/api"

	// API Endpoints
	CasesListEndpoint     = "/cases/list"
	CaseItemsEndpoint     = "/cases/%d/items"
	CaseOpenEndpoint      = "/cases/open"
	FreeCaseCheckEndpoint = "/user/%d/free-case-check"
)
