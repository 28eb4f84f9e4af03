package domain

type ConversationStart struct {
	ConversationID string
	Message        string
	Step           int
	NextField      string
	InputType      string
	HelpText       string
}

type ConversationStep struct {
	CompanyID      string
	ConversationID string
	Step           int
	Field          string
	Value          string
}

type ConversationReply struct {
	Complete   bool
	Message    string
	Step       int
	NextField  string
	InputType  string
	HelpText   string
	Result     *ValuationResult
	ReportHTML string
	InfoHTML   string
}
