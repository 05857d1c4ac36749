package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEnvelopeValidate(t *testing.T) {
	base := EventEnvelope{
		TenantID: "t_acme", Mode: "saas", Env: "dev", ProjectID: "proj_1",
		ActorID: "user_1", ActorType: ActorHuman,
	}
	assert.NoError(t, base.Validate())

	missingTenant := base
	missingTenant.TenantID = ""
	assert.Error(t, missingTenant.Validate())

	missingActor := base
	missingActor.ActorID = ""
	assert.Error(t, missingActor.Validate())
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "routing_registry/t_acme", StreamName("routing_registry", "t_acme"))
}
