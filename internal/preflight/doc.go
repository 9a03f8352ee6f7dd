// Package preflight provides readiness checks for the paths and services
// the agent depends on.
//
// These checks run in two contexts:
//   - The daemon calls CheckRoots after loading the policy and logs every
//     monitored root it cannot read. Missing roots do not stop the agent.
//   - The CLI "gfimx check" command runs RunAll and prints every result.
//
// Service checks are gated by configuration: an unset broker, Kafka
// cluster, or export endpoint is skipped.
package preflight
