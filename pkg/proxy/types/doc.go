// Package types defines the OpenAI-compatible wire types of the gateway:
// the chat completion request, the batch response and streaming chunk,
// the model list and the error envelope.
//
// Message content is either a string or a list of parts; Content keeps
// the form it was decoded from so responses echo what clients sent:
//
//	var msg types.Message
//	_ = json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"hi"}]}`), &msg)
//	msg.Content.IsMultipart() // true
//	msg.Content.PlainText()   // "hi"
//
// Responses carry the conversation handle in a conversation_id field that
// standard OpenAI SDKs ignore.
package types
