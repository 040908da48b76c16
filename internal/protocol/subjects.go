package protocol

// SubjectGameEventsPrefix is the NATS subject prefix for mirrored run
// events; the run ID is appended as the final token.
const SubjectGameEventsPrefix = "game.events"
