/*
Package session implements conversation management and persistence orchestration.

It serializes access to the refinement conversation of each workflow, across
goroutines with reference-counted local locks and across host replicas with an
optional distributed lock, on top of any ports.ConversationStore.
*/
package session
