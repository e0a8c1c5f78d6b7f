package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates the outbound mutations the Synthesis Engine can
// execute (spec §3).
type JobType string

const (
	JobCreateRole         JobType = "create_role"
	JobDeleteRole         JobType = "delete_role"
	JobAssignRole         JobType = "assign_role"
	JobRemoveRole         JobType = "remove_role"
	JobCreateChannel      JobType = "create_channel"
	JobDeleteChannel      JobType = "delete_channel"
	JobUpdatePermissions  JobType = "update_permissions"
)

// JobState is the lifecycle state of a JobRecord (spec §3).
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateDelayed   JobState = "delayed"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// RolePayload, ChannelPayload and PermissionsPayload are the tagged-union
// members of SynthesisJob.Payload, keyed by JobType.
type RolePayload struct {
	Name        string   `json:"name"`
	Color       int      `json:"color,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	RoleID      string   `json:"roleId,omitempty"`
	UserID      string   `json:"userId,omitempty"`
}

type ChannelPayload struct {
	Name      string `json:"name"`
	ParentID  string `json:"parentId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Private   bool   `json:"private,omitempty"`
}

type PermissionsPayload struct {
	ChannelID   string   `json:"channelId"`
	TargetID    string   `json:"targetId"`
	Allow       []string `json:"allow,omitempty"`
	Deny        []string `json:"deny,omitempty"`
}

// SynthesisJob is the user-facing enqueue request (spec §3).
type SynthesisJob struct {
	Type           JobType         `json:"type"`
	GuildID        string          `json:"guildId"`
	CommunityID    string          `json:"communityId"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Priority       int             `json:"priority,omitempty"`
	Delay          time.Duration   `json:"delay,omitempty"`
}

// ProcessedKey is the KV idempotency key for this job's outbound mutation.
func (j *SynthesisJob) ProcessedKey() string {
	return "synthesis:processed:" + j.IdempotencyKey
}

// EnqueueOptions carries the optional scheduling hints accepted by
// Engine.Enqueue.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

// JobRecord is the queue-internal representation persisted by the durable
// store (spec §3).
type JobRecord struct {
	JobID          string
	Job            SynthesisJob
	AttemptsMade   int
	State          JobState
	CreatedAt      time.Time
	ScheduledAt    time.Time // when the job becomes eligible for pickup (delay/backoff)
	ProcessedAt    *time.Time
	FinishedAt     *time.Time
	FailedReason   string
}

// BatchManifestEntry describes one job within a declarative batch expansion
// (Engine.EnqueueBatch).
type BatchManifestEntry struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	IdempotencyKeySuffix string     `json:"idempotencyKeySuffix"`
	Priority    int             `json:"priority,omitempty"`
}
