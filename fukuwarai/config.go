package fukuwarai

import (
	"fmt"
	"time"
)

type Config struct {
	// Seats
	MaxPlayers int
	MinPlayers int

	// Runtime eviction after the last viewer detaches (0 disables)
	IdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPlayers:  6,
		MinPlayers:  1,
		IdleTimeout: 10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.MaxPlayers <= 0 {
		return fmt.Errorf("MaxPlayers must be > 0")
	}
	if c.MinPlayers <= 0 {
		return fmt.Errorf("MinPlayers must be > 0")
	}
	if c.MinPlayers > c.MaxPlayers {
		return fmt.Errorf("MinPlayers must be <= MaxPlayers")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("IdleTimeout must be >= 0")
	}
	return nil
}
