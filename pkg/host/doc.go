/*
Package host answers the workflow designer protocol.

A Server receives REFINE_WORKFLOW, CLEAR_CONVERSATION and
OPEN_WORKFLOW_IN_EDITOR envelopes, delegates refinement to a ports.Refiner,
validates the result against the node-type schema and keeps each workflow's
conversation through a session.Manager. Every request carrying a request id
gets exactly one reply.

A Previewer pushes PREVIEW_* events for workflow documents that change outside
the designer.
*/
package host
