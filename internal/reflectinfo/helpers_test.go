package reflectinfo

import "github.com/keystone-engine/keystone/internal/memory"

func newTestLinear() *memory.Linear {
	return memory.NewLinear()
}
