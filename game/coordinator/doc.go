// Package coordinator implements the room session rules of the multiplayer
// server.
//
// The coordinator receives one call per inbound client event, consults and
// mutates the room store, and tells the transport which connections should
// receive which messages:
//
//   - createRoom: a new room is allocated and the creator is seated in it
//   - joinRoom: the client is seated if the room exists and has space
//   - playerMoved: the position is stored and relayed to everyone else
//   - disconnect: the client is removed and the room is told who is left
//
// Expected failures such as a full or unknown room are answered with a
// message to the requester. They are not errors from the server's point of
// view and are only logged at debug level.
//
// The coordinator owns no I/O. Anything that satisfies Transport can carry
// its messages, which keeps the rules testable with an in-memory recorder.
package coordinator
