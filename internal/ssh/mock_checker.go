package ssh

import "context"

// MockChecker implements Checker for testing
type MockChecker struct {
	// CheckSSHFunc allows customizing the behavior of CheckSSH
	CheckSSHFunc func(ctx context.Context, address, username, keyPath string) error
}

// CheckSSH implements Checker.CheckSSH
func (m *MockChecker) CheckSSH(ctx context.Context, address, username, keyPath string) error {
	if m.CheckSSHFunc != nil {
		return m.CheckSSHFunc(ctx, address, username, keyPath)
	}
	return nil // By default, pretend SSH is immediately available
}
