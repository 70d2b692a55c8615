// Package conversation defines the messages, history and tool proposals
// exchanged between the agent workflow, the language model and the
// gateway. Everything here is JSON-serializable and safe to carry in
// Temporal payloads.
package conversation
