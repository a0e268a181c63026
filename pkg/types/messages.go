package types

// Client -> Server (JSON text frames on /ws)
// CreateSession:
//   max_connections: number
//   match_type: string
//   host_address: string   // where joining clients should connect
//   attributes: { [key]: string } // optional extra search attributes
//
// FindSessions:
//   max_results: number
//
// JoinSession:
//   session_id: string
//
// DestroySession: {}   // the session this connection hosts
// StartSession: {}     // the session this connection hosts

// Server -> Client
// CreateSessionComplete:
//   success: boolean
//   session: SessionAd
//
// FindSessionsComplete:
//   success: boolean
//   sessions: SessionAd[]   // creation order
//
// JoinSessionComplete:
//   result: "Success" | "SessionIsFull" | "SessionDoesNotExist" |
//           "CouldNotRetrieveAddress" | "AlreadyInSession" | "UnknownError"
//   session: SessionAd      // on success, carries host_address
//
// DestroySessionComplete / StartSessionComplete:
//   success: boolean
//
// Error:
//   error: string

const (
	MsgCreateSession  = "CreateSession"
	MsgFindSessions   = "FindSessions"
	MsgJoinSession    = "JoinSession"
	MsgDestroySession = "DestroySession"
	MsgStartSession   = "StartSession"

	MsgCreateSessionComplete  = "CreateSessionComplete"
	MsgFindSessionsComplete   = "FindSessionsComplete"
	MsgJoinSessionComplete    = "JoinSessionComplete"
	MsgDestroySessionComplete = "DestroySessionComplete"
	MsgStartSessionComplete   = "StartSessionComplete"
	MsgError                  = "Error"
)
