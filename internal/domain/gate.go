package domain

// ChannelRequirement is one subscription a user must hold before delivery.
type ChannelRequirement struct {
	ChatID   int64  `json:"chat_id" yaml:"chat_id" bson:"chat_id"`
	Name     string `json:"name" yaml:"name" bson:"name"`
	JoinLink string `json:"join_link" yaml:"join_link" bson:"join_link"`
}

// GateRequirement is the administrator-configured set of subscription checks.
// It is read as a snapshot per evaluation and carries no version.
type GateRequirement struct {
	Primary    *ChannelRequirement  `json:"primary,omitempty" yaml:"primary,omitempty" bson:"primary,omitempty"`
	Additional []ChannelRequirement `json:"additional,omitempty" yaml:"additional,omitempty" bson:"additional,omitempty"`
}

// IsEmpty reports whether no checks are configured.
func (g *GateRequirement) IsEmpty() bool {
	return g == nil || (g.Primary == nil && len(g.Additional) == 0)
}
