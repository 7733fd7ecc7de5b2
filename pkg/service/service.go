package service

import (
	"github.com/aerosuite/platform/pkg/domain"
	"github.com/aerosuite/platform/pkg/events"
)

// publish drains the aggregate's pending events onto the bus. Events are
// published only after persistence succeeded, in recording order.
func publish(bus *events.Bus, root *domain.Root) {
	if bus == nil {
		return
	}
	for _, ev := range root.TakeEvents() {
		bus.Publish(ev)
	}
	root.ClearModified()
}
