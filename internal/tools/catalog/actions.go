package catalog

import "github.com/haasonsaas/conductor/internal/tools"

type gmailSendEmailInput struct {
	RecipientEmail  string   `json:"recipient_email" jsonschema:"format=email" jsonschema_description:"Recipient email address"`
	Subject         string   `json:"subject" jsonschema_description:"Email subject"`
	Body            string   `json:"body" jsonschema_description:"Email body content"`
	ExtraRecipients []string `json:"extra_recipients,omitempty" jsonschema_description:"Extra recipient email addresses"`
	Cc              []string `json:"cc,omitempty" jsonschema_description:"CC email addresses"`
	Bcc             []string `json:"bcc,omitempty" jsonschema_description:"BCC email addresses"`
	IsHTML          bool     `json:"is_html,omitempty" jsonschema_description:"Set to true if the body contains HTML tags"`
}

type gmailFetchEmailsInput struct {
	Query            string   `json:"query,omitempty" jsonschema_description:"Gmail search query, e.g. 'from:alice is:unread'"`
	MaxResults       int      `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=500" jsonschema_description:"Maximum number of messages to return"`
	LabelIDs         []string `json:"label_ids,omitempty" jsonschema_description:"Only return messages with all of these label ids"`
	PageToken        string   `json:"page_token,omitempty" jsonschema_description:"Token for the next page of results"`
	IncludeSpamTrash bool     `json:"include_spam_trash,omitempty" jsonschema_description:"Include SPAM and TRASH messages"`
}

type gmailCreateDraftInput struct {
	RecipientEmail string   `json:"recipient_email" jsonschema:"format=email" jsonschema_description:"Recipient email address"`
	Subject        string   `json:"subject" jsonschema_description:"Email subject"`
	Body           string   `json:"body" jsonschema_description:"Email body content"`
	Cc             []string `json:"cc,omitempty" jsonschema_description:"CC email addresses"`
	Bcc            []string `json:"bcc,omitempty" jsonschema_description:"BCC email addresses"`
	ThreadID       string   `json:"thread_id,omitempty" jsonschema_description:"Thread to add the draft to"`
}

type gmailReplyInput struct {
	ThreadID       string `json:"thread_id" jsonschema_description:"ID of the thread to reply to"`
	RecipientEmail string `json:"recipient_email" jsonschema:"format=email" jsonschema_description:"Recipient email address"`
	MessageBody    string `json:"message_body" jsonschema_description:"Reply content"`
	IsHTML         bool   `json:"is_html,omitempty" jsonschema_description:"Set to true if the body contains HTML tags"`
}

type calendarCreateEventInput struct {
	Summary         string   `json:"summary" jsonschema_description:"Event title"`
	StartDatetime   string   `json:"start_datetime" jsonschema_description:"Start time in ISO 8601 format"`
	EventDurationHr int      `json:"event_duration_hour,omitempty" jsonschema:"minimum=0" jsonschema_description:"Duration hours"`
	EventDurationMn int      `json:"event_duration_minutes,omitempty" jsonschema:"minimum=0,maximum=59" jsonschema_description:"Duration minutes"`
	Description     string   `json:"description,omitempty" jsonschema_description:"Event description"`
	Location        string   `json:"location,omitempty" jsonschema_description:"Event location"`
	Attendees       []string `json:"attendees,omitempty" jsonschema_description:"Attendee email addresses"`
	Timezone        string   `json:"timezone,omitempty" jsonschema_description:"IANA time zone, e.g. America/New_York"`
	CalendarID      string   `json:"calendar_id,omitempty" jsonschema_description:"Calendar id, defaults to primary"`
}

type calendarListEventsInput struct {
	CalendarID   string `json:"calendarId,omitempty" jsonschema_description:"Calendar id, defaults to primary"`
	TimeMin      string `json:"timeMin,omitempty" jsonschema_description:"Lower bound (RFC3339) for event end time"`
	TimeMax      string `json:"timeMax,omitempty" jsonschema_description:"Upper bound (RFC3339) for event start time"`
	Query        string `json:"q,omitempty" jsonschema_description:"Free text search terms"`
	MaxResults   int    `json:"maxResults,omitempty" jsonschema:"minimum=1,maximum=2500" jsonschema_description:"Maximum number of events"`
	SingleEvents bool   `json:"singleEvents,omitempty" jsonschema_description:"Expand recurring events into instances"`
}

type calendarFreeSlotsInput struct {
	TimeMin string   `json:"time_min,omitempty" jsonschema_description:"Start of the search window"`
	TimeMax string   `json:"time_max,omitempty" jsonschema_description:"End of the search window"`
	Items   []string `json:"items,omitempty" jsonschema_description:"Calendar ids to check, defaults to primary"`
}

type docsCreateInput struct {
	Title string `json:"title" jsonschema_description:"Document title"`
	Text  string `json:"text,omitempty" jsonschema_description:"Initial document text"`
}

type docsGetInput struct {
	ID string `json:"id" jsonschema_description:"Document id"`
}

type sheetsCreateInput struct {
	Title string `json:"title" jsonschema_description:"Spreadsheet title"`
}

type sheetsBatchGetInput struct {
	SpreadsheetID string   `json:"spreadsheet_id" jsonschema_description:"Spreadsheet id"`
	Ranges        []string `json:"ranges,omitempty" jsonschema_description:"A1 ranges to read, e.g. Sheet1!A1:C10"`
}

type sheetsUpdateValuesInput struct {
	SpreadsheetID string  `json:"spreadsheet_id" jsonschema_description:"Spreadsheet id"`
	SheetName     string  `json:"sheet_name" jsonschema_description:"Sheet (tab) name"`
	FirstCellA1   string  `json:"first_cell_location,omitempty" jsonschema_description:"Top-left cell in A1 notation"`
	Values        [][]any `json:"values" jsonschema_description:"Rows of cell values"`
}

type driveFindFileInput struct {
	Query    string `json:"q,omitempty" jsonschema_description:"Drive search query"`
	PageSize int    `json:"pageSize,omitempty" jsonschema:"minimum=1,maximum=1000" jsonschema_description:"Maximum number of files"`
}

type driveCreateTextInput struct {
	FileName string `json:"file_name" jsonschema_description:"Name of the file"`
	Text     string `json:"text_content" jsonschema_description:"File content"`
	MimeType string `json:"mime_type,omitempty" jsonschema_description:"MIME type, defaults to text/plain"`
	ParentID string `json:"parent_id,omitempty" jsonschema_description:"Folder to create the file in"`
}

type notionCreatePageInput struct {
	ParentID string `json:"parent_id" jsonschema_description:"Parent page id"`
	Title    string `json:"title" jsonschema_description:"Page title"`
	Markdown string `json:"markdown,omitempty" jsonschema_description:"Page content in markdown"`
}

type notionSearchInput struct {
	Query    string `json:"query,omitempty" jsonschema_description:"Text to search page titles for"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"minimum=1,maximum=100" jsonschema_description:"Maximum number of results"`
}

type slackSendMessageInput struct {
	Channel string `json:"channel" jsonschema_description:"Channel id or name"`
	Text    string `json:"text" jsonschema_description:"Message text"`
}

type slackListChannelsInput struct {
	Limit           int  `json:"limit,omitempty" jsonschema:"minimum=1,maximum=1000" jsonschema_description:"Maximum number of channels"`
	ExcludeArchived bool `json:"exclude_archived,omitempty" jsonschema_description:"Skip archived channels"`
}

type postTextInput struct {
	Text string `json:"text" jsonschema_description:"Post content"`
}

type linkedinPostInput struct {
	Author     string `json:"author" jsonschema_description:"Author URN, e.g. urn:li:person:abc"`
	Commentary string `json:"commentary" jsonschema_description:"Post content"`
	Visibility string `json:"visibility,omitempty" jsonschema:"enum=PUBLIC,enum=CONNECTIONS" jsonschema_description:"Who can see the post"`
}

type facebookPostInput struct {
	PageID  string `json:"page_id" jsonschema_description:"Page to post to"`
	Message string `json:"message" jsonschema_description:"Post content"`
	Link    string `json:"link,omitempty" jsonschema_description:"Link to attach"`
}

type searchInput struct {
	Query string `json:"query" jsonschema_description:"Search query"`
}

// Actions lists the built-in action tools.
func Actions() []tools.Action {
	return []tools.Action{
		{
			Name: "gmailSendEmail", Integration: "Gmail", BackendAction: "GMAIL_SEND_EMAIL",
			Description:    "Sends an email via gmail api using the authenticated user's google profile display name.",
			Input:          &gmailSendEmailInput{},
			SuccessMessage: "Email sent successfully",
		},
		{
			Name: "gmailFetchEmails", Integration: "Gmail", BackendAction: "GMAIL_FETCH_EMAILS",
			Description:    "Fetches a list of email messages from a gmail account, supporting filtering, pagination, and optional full content retrieval.",
			Input:          &gmailFetchEmailsInput{},
			SuccessMessage: "Emails fetched successfully",
		},
		{
			Name: "gmailCreateDraft", Integration: "Gmail", BackendAction: "GMAIL_CREATE_EMAIL_DRAFT",
			Description:    "Creates a gmail email draft.",
			Input:          &gmailCreateDraftInput{},
			SuccessMessage: "Draft created successfully",
		},
		{
			Name: "gmailReplyToEmail", Integration: "Gmail", BackendAction: "GMAIL_REPLY_TO_THREAD",
			Description:    "Sends a reply within a specific gmail thread.",
			Input:          &gmailReplyInput{},
			SuccessMessage: "Reply sent successfully",
		},
		{
			Name: "googleCalendarCreateEvent", Integration: "Google Calendar", BackendAction: "GOOGLECALENDAR_CREATE_EVENT",
			Description:    "Create a Google Calendar event using start_datetime plus duration fields.",
			Input:          &calendarCreateEventInput{},
			SuccessMessage: "Event created successfully",
		},
		{
			Name: "googleCalendarListEvents", Integration: "Google Calendar", BackendAction: "GOOGLECALENDAR_EVENTS_LIST",
			Description:    "Returns events on the specified calendar.",
			Input:          &calendarListEventsInput{},
			SuccessMessage: "Events retrieved successfully",
		},
		{
			Name: "googleCalendarFindFreeSlots", Integration: "Google Calendar", BackendAction: "GOOGLECALENDAR_FIND_FREE_SLOTS",
			Description:    "Finds free and busy time slots in Google Calendars for a specified time window.",
			Input:          &calendarFreeSlotsInput{},
			SuccessMessage: "Free slots retrieved successfully",
		},
		{
			Name: "googleDocsCreateDocument", Integration: "Google Docs", BackendAction: "GOOGLEDOCS_CREATE_DOCUMENT",
			Description:    "Creates a new Google Docs document using the provided title as filename and inserts the initial text.",
			Input:          &docsCreateInput{},
			SuccessMessage: "Document created successfully",
		},
		{
			Name: "googleDocsGetDocumentById", Integration: "Google Docs", BackendAction: "GOOGLEDOCS_GET_DOCUMENT_BY_ID",
			Description:    "Retrieves an existing Google document by its id.",
			Input:          &docsGetInput{},
			SuccessMessage: "Document retrieved successfully",
		},
		{
			Name: "googleSheetsCreateGoogleSheet", Integration: "Google Sheets", BackendAction: "GOOGLESHEETS_CREATE_GOOGLE_SHEET1",
			Description:    "Creates a new Google Spreadsheet with the given title.",
			Input:          &sheetsCreateInput{},
			SuccessMessage: "Spreadsheet created successfully",
		},
		{
			Name: "googleSheetsBatchGet", Integration: "Google Sheets", BackendAction: "GOOGLESHEETS_BATCH_GET",
			Description:    "Retrieves data from specified cell ranges in a Google Spreadsheet.",
			Input:          &sheetsBatchGetInput{},
			SuccessMessage: "Values retrieved successfully",
		},
		{
			Name: "googleSheetsUpdateValues", Integration: "Google Sheets", BackendAction: "GOOGLESHEETS_BATCH_UPDATE",
			Description:    "Writes rows of values to a sheet starting at a cell.",
			Input:          &sheetsUpdateValuesInput{},
			SuccessMessage: "Values updated successfully",
		},
		{
			Name: "googleDriveFindFile", Integration: "Google Drive", BackendAction: "GOOGLEDRIVE_FIND_FILE",
			Description:    "Searches Google Drive for files and folders matching a query.",
			Input:          &driveFindFileInput{},
			SuccessMessage: "Files retrieved successfully",
		},
		{
			Name: "googleDriveCreateFileFromText", Integration: "Google Drive", BackendAction: "GOOGLEDRIVE_CREATE_FILE_FROM_TEXT",
			Description:    "Creates a new file in Google Drive from provided text content.",
			Input:          &driveCreateTextInput{},
			SuccessMessage: "File created successfully",
		},
		{
			Name: "notionCreateNotionPage", Integration: "Notion", BackendAction: "NOTION_CREATE_NOTION_PAGE",
			Description:    "Creates a new page in a Notion workspace under a parent page.",
			Input:          &notionCreatePageInput{},
			SuccessMessage: "Page created successfully",
		},
		{
			Name: "notionSearchNotionPage", Integration: "Notion", BackendAction: "NOTION_SEARCH_NOTION_PAGE",
			Description:    "Searches Notion pages and databases by title.",
			Input:          &notionSearchInput{},
			SuccessMessage: "Search completed successfully",
		},
		{
			Name: "slackSendMessage", Integration: "Slack", BackendAction: "SLACK_SENDS_A_MESSAGE_TO_A_SLACK_CHANNEL",
			Description:    "Posts a message to a Slack channel, direct message or private group.",
			Input:          &slackSendMessageInput{},
			SuccessMessage: "Message sent successfully",
		},
		{
			Name: "slackListAllChannels", Integration: "Slack", BackendAction: "SLACK_LIST_ALL_CHANNELS",
			Description:    "Lists conversations available to the user.",
			Input:          &slackListChannelsInput{},
			SuccessMessage: "Channels retrieved successfully",
		},
		{
			Name: "twitterCreationOfAPost", Integration: "X (Twitter)", BackendAction: "TWITTER_CREATION_OF_A_POST",
			Description:    "Creates a post on X (Twitter) for the authenticated user.",
			Input:          &postTextInput{},
			SuccessMessage: "Post created successfully",
		},
		{
			Name: "linkedinCreatePost", Integration: "LinkedIn", BackendAction: "LINKEDIN_CREATE_LINKED_IN_POST",
			Description:    "Creates a new post on LinkedIn for the authenticated user or an organization.",
			Input:          &linkedinPostInput{},
			SuccessMessage: "Post created successfully",
		},
		{
			Name: "facebookCreatePost", Integration: "Facebook", BackendAction: "FACEBOOK_CREATE_POST",
			Description:    "Creates a new post on a Facebook page.",
			Input:          &facebookPostInput{},
			SuccessMessage: "Post created successfully",
		},
		{
			Name: "composioSearch", BackendAction: "COMPOSIO_SEARCH_SEARCH",
			Description:    "Searches the web and returns relevant results with titles, links and snippets.",
			Input:          &searchInput{},
			SuccessMessage: "Search completed successfully",
		},
		{
			Name: "composioNewsSearch", BackendAction: "COMPOSIO_SEARCH_NEWS_SEARCH",
			Description:    "Searches recent news articles for a query.",
			Input:          &searchInput{},
			SuccessMessage: "News search completed successfully",
		},
	}
}
