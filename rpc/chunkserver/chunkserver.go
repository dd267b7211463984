package chunkserver

// ServiceName is the name the chunk server API is registered under.
const ServiceName = "ChunkServerAPI"

// SubmitChunk is the fully qualified RPC method for chunk submission.
const SubmitChunk = ServiceName + ".SubmitChunk"

// OpenSession is the fully qualified RPC method for session reservation.
const OpenSession = ServiceName + ".OpenSession"

// Status codes returned in SubmitChunkReply.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

type SubmitChunkArgs struct {
	SessionID string
	Offset    int64
	Size      int64
	ChunkHash string
	Data      []byte

	// Set only on the final chunk.
	Final           bool
	TotalSize       int64
	WholeStreamHash string
	Filename        string

	Params map[string]string
}

type SubmitChunkReply struct {
	Status int

	// Committed is set once the artifact has been reassembled and verified.
	Committed    bool
	Pending      bool
	ArtifactPath string
}

type OpenSessionArgs struct {
	SessionID string
}

type OpenSessionReply struct {
	Status int
}

type HealthCheckArgs struct{}

type HealthCheckReply struct {
	Status int

	ActiveSessions    int
	CommittedSessions int
}

type IChunkServer interface {
	OpenSession(args *OpenSessionArgs, reply *OpenSessionReply) error
	SubmitChunk(args *SubmitChunkArgs, reply *SubmitChunkReply) error
	HealthCheck(args *HealthCheckArgs, reply *HealthCheckReply) error
}
