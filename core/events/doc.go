// Package events defines the conversation event protocol shared by the
// orchestrator and every transport.
//
// Each turn produces an ordered stream of events:
//
//   - StateChange (state_change): the session moved to a new conversation
//     state.
//   - Transcript (transcript): append-only piece of the user's transcript.
//   - Response (response): append-only piece of the assistant's reply text.
//   - Audio (audio): synthesized speech fragment with its sample rate and a
//     0-based index that increases within the turn.
//   - Error (error): terminal failure of the turn, classified by ErrorKind.
//   - Done (done): terminal success of the turn.
//
// A turn ends with exactly one Error or Done, unless it was cancelled, in
// which case nothing follows the last delivered event.
package events
