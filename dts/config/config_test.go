package config_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dts-project/dts/config"
)

const sampleConfig = `
name nodeA
host nodeA.example.org
port 3000
root /var/dts
loPort 3005
hiPort 3099
contact 3001

queue
    name sci
    node ingest
    type normal
    mode give
    method dts
    port 3005
    nthreads 4
    src start
    dest nodeB

queue
    name delivery
    node endpoint
    type normal
    mode give
    method dts
    port 3010
    src nodeB
    dest end
    deliveryDir /var/dts/incoming
    deliveryCmd dts.null
    diskFloor 1048576
    ceiling 2
`

func TestParseNodeAndQueues(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "nodeA", cfg.Name)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/var/dts", cfg.Root)
	require.Len(t, cfg.Queues, 2)

	sci := cfg.Queues[0]
	assert.Equal(t, "sci", sci.Name)
	assert.Equal(t, "ingest", sci.Node)
	assert.Equal(t, 4, sci.NThreads)
	assert.Equal(t, "start", sci.Src)

	delivery := cfg.Queues[1]
	assert.Equal(t, "endpoint", delivery.Node)
	assert.Equal(t, "dts.null", delivery.DeliveryCmd)
	assert.Equal(t, 1, delivery.NThreads) // default
	assert.EqualValues(t, 1048576, delivery.DiskFloor)
	assert.Equal(t, 2, delivery.Ceiling)
}

func TestValidateRejectsInconsistentRole(t *testing.T) {
	bad := `
name nodeA
host h
port 3000
root /var/dts

queue
    name sci
    node transfer
    src start
    dest nodeB
`
	_, err := config.Parse(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	_, err := config.Parse(strings.NewReader("name onlyname\n"))
	assert.Error(t, err)
}
