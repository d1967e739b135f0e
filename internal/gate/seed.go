package gate

import (
	"fmt"
	"os"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadSeed reads a requirement from a YAML file:
//
//	primary:
//	  chat_id: -1001234567890
//	  name: Main channel
//	  join_link: https://t.me/+invite
//	additional:
//	  - chat_id: -1009876543210
//	    name: Backup
//	    join_link: https://t.me/backup
func LoadSeed(path string) (*domain.GateRequirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gate seed: %w", err)
	}
	var req domain.GateRequirement
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse gate seed %s: %w", path, err)
	}
	if req.Primary != nil && req.Primary.ChatID == 0 {
		return nil, fmt.Errorf("gate seed %s: primary.chat_id is required", path)
	}
	for i, r := range req.Additional {
		if r.ChatID == 0 {
			return nil, fmt.Errorf("gate seed %s: additional[%d].chat_id is required", path, i)
		}
	}
	return &req, nil
}
