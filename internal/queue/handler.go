package queue

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rabbitmq/amqp091-go"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/checkpoint"
	"github.com/lorekeep/lorekeep/pkg/extract"
	"github.com/lorekeep/lorekeep/pkg/fingerprint"
	"github.com/lorekeep/lorekeep/pkg/leaselock"
	"github.com/lorekeep/lorekeep/pkg/store"
)

// Handler bundles everything a worker needs to process jobs. All fields
// except S3 and Locks are required; without S3 reports are only kept
// locally, without Locks extraction runs are not serialized across
// workers.
type Handler struct {
	Store        store.GraphStore
	Embedder     ai.Embedder
	Completer    ai.Completer
	Breaker      *breaker.Breaker
	Fingerprints *fingerprint.Store
	Checkpoints  *checkpoint.Manager
	Fallback     *extract.KeywordFallback
	S3           *s3.Client
	Locks        *leaselock.Client
	Channel      *amqp091.Channel
}
