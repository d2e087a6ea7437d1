/*
Package channel implements the client side of the client/host request/response protocol.

Every request carries a correlation id. A single dispatcher goroutine (Run)
reads the transport and hands each response to the one request waiting for
that id; messages without an id are push events delivered to handlers
registered with OnEvent.

Each Send settles exactly once, with one of:

  - a *Response, when the expected success type arrives first;
  - a *DomainError, when the expected failure type arrives first;
  - a *ResponseError, when ERROR or any other message with that id arrives first;
  - ErrTimeout, when the local timer fires first;
  - ErrCanceled or ErrClosed, when the caller gives up or the transport goes away.

Whatever the outcome, the pending entry is removed before Send returns.
Responses arriving after that are dropped.
*/
package channel
