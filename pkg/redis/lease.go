package redis

import (
	"context"
	"fmt"
)

// releaseScript deletes KEYS[1] only when it still holds ARGV[1].
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// ReleaseLease drops a SETNX lease if owner still holds it. It reports
// whether the key was deleted; a lease that expired and was taken by
// someone else is left untouched.
func (c *Client) ReleaseLease(ctx context.Context, key, owner string) (bool, error) {
	s, err := c.conn()
	if err != nil {
		return false, err
	}
	if key == "" || owner == "" {
		return false, nil
	}
	deleted, err := s.Eval(ctx, releaseScript, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release lease %s: %w", key, err)
	}
	return deleted > 0, nil
}
