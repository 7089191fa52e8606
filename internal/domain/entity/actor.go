package entity

type Capability string

const (
	CapabilityModerate          Capability = "moderate"
	CapabilityComplete          Capability = "complete"
	CapabilityResolve           Capability = "resolve"
	CapabilityCancel            Capability = "cancel"
	CapabilityEditListing       Capability = "edit_listing"
	CapabilityViewConversations Capability = "view_conversations"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

const SystemActorID = "system"

func SystemActor() Actor {
	return Actor{ID: SystemActorID, Roles: []string{"system"}}
}

func (a Actor) IsZero() bool {
	return a.ID == ""
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
