package manager

// Flush waits until every queued orchestration task has run.
func (m *Manager) Flush() {
	m.exec.Do(func() {})
}
