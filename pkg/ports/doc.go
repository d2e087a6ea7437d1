/*
Package ports defines the driven ports (interfaces) for the Arbor designer.

These interfaces decouple the client/host core from external implementations,
allowing it to work with various transports, storage backends and AI providers.

# Key Interfaces

  - Transport: An ordered, message-with-id substrate between client and host (stdio, memory, HTTP).
  - ConversationStore: Persists refinement conversation histories per workflow.
  - DistributedLocker: Provides distributed locking for concurrent conversation access.
  - Refiner: The host-side AI collaborator that refines a workflow.
  - WorkflowLibrary: Loads and saves workflow documents (e.g., from Loam or Memory).
  - Opener: Opens a workflow document in an external editor.
*/
package ports
