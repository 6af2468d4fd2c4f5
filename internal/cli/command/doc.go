// Package command defines the skidsave CLI commands.
//
// skidsave operates directly on a save directory: listing and
// inspecting blobs, verifying manifest integrity, pruning backups and
// serving live metrics. It uses urfave/cli/v2 for command parsing.
package command
