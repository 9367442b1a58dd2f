package messaging

// Topic constants for the fleet messaging system
const (
	// Core data flow topics
	TopicSamples   = "fleet.samples"   // pollers → sampleproc
	TopicEstimates = "fleet.estimates" // sampleproc → apiserver/dashboard
	TopicSnapshots = "fleet.snapshots" // sampleproc → dashboard
	TopicBlocks    = "fleet.blocks"    // blockwatch → sampleproc
)
