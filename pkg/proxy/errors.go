package proxy

import (
	"errors"

	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/proxy/types"
)

// HandleError converts an error to the OpenAI error envelope. Body parsing
// errors are reported as invalid requests; everything else is mapped by the
// gateway's classification.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}
	return gateway.ErrorResponse(err)
}
