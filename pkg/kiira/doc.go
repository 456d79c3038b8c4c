// Package kiira is the client for the Kiira chat provider and its SeaArt
// companion services.
//
// Every call goes through the shared upstream.Transport with the browser
// style headers the provider expects. The package exposes the primitive
// operations the gateway composes into a conversation turn:
//
//   - LoginGuest, MyInfo: guest identity
//   - ChatGroups, CreateChatGroup: chat group binding
//   - AgentList, CatalogSource: the agent catalog
//   - Upload, FetchMedia: image attachments
//   - SendMessage, StreamCompletion: one exchange
//
// Responses are read with gjson; the provider wraps results in a
// {"status": {...}, "data": ...} envelope and a missing data field is
// reported as an *APIError.
package kiira
