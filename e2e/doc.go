// Package e2e holds end-to-end tests that run the service against real
// brokers in containers. They are built with the integration tag and need
// DOCKER_AVAILABLE=1.
package e2e
