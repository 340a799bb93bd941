package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicWeight(t *testing.T) {
	assert.Equal(t, 0.1, HeuristicWeight("Serviço de instalação de rede"))
	assert.Equal(t, 0.7, HeuristicWeight("Licença Microsoft 365"))
	assert.Equal(t, 0.2, HeuristicWeight("Teclado USB"))
	assert.Equal(t, 0.9, HeuristicWeight("Monitor médico"))
	assert.Equal(t, 0.5, HeuristicWeight("Cadeira de escritório"))
}
