//go:build integration

// Package testutil runs the jobrelay binary in a container next to its backends.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage    = "mysql:8.0.36"
	mysqlAlias    = "mysql"
	mysqlDatabase = "jobrelay"
	mysqlPassword = "secret"

	cliImage = "alpine:3.20"
	cliPath  = "/jobrelay"

	startupTimeout = 2 * time.Minute
	exitTimeout    = 2 * time.Minute
)

var mysqlPort = nat.Port("3306/tcp")

// MySQLContainer is a MySQL server on a private network. DSN is the address CLI
// containers on that network use; DB is connected from the host.
type MySQLContainer struct {
	Container testcontainers.Container
	Network   *testcontainers.DockerNetwork
	DB        *sql.DB
	DSN       string
}

func mysqlDSN(hostPort string) string {
	return fmt.Sprintf("root:%s@tcp(%s)/%s?parseTime=true&multiStatements=true", mysqlPassword, hostPort, mysqlDatabase)
}

// StartMySQLContainer starts MySQL with the jobrelay database, skipping the test
// when Docker is unavailable. Everything it starts is removed on test cleanup.
func StartMySQLContainer(t *testing.T, ctx context.Context) MySQLContainer {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() { _ = net.Remove(ctx) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{string(mysqlPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			Networks:       []string{net.Name},
			NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
			WaitingFor: wait.ForSQL(mysqlPort, "mysql", func(host string, port nat.Port) string {
				return mysqlDSN(host + ":" + port.Port())
			}).WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, mysqlPort, "")
	if err != nil {
		t.Fatalf("resolve mysql endpoint: %v", err)
	}
	db, err := sql.Open("mysql", mysqlDSN(endpoint))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return MySQLContainer{
		Container: container,
		Network:   net,
		DB:        db,
		DSN:       mysqlDSN(mysqlAlias + ":" + mysqlPort.Port()),
	}
}

// BuildBinary compiles pkg for linux so it can run inside RunCLIContainer.
func BuildBinary(t *testing.T, pkg string) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "jobrelay")
	cmd := exec.Command("go", "build", "-o", bin, pkg)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS=linux", "GOARCH="+runtime.GOARCH)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", pkg, err, out)
	}

	return bin
}

// RunCLIContainer runs the binary with args on networkName and returns its exit
// code and combined output. files are copied into the container as well.
func RunCLIContainer(
	t *testing.T,
	ctx context.Context,
	networkName, binaryPath string,
	args []string,
	files ...testcontainers.ContainerFile,
) (int, string) {
	t.Helper()

	files = append(files, testcontainers.ContainerFile{
		HostFilePath:      binaryPath,
		ContainerFilePath: cliPath,
		FileMode:          0o755,
	})
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliImage,
			Entrypoint: []string{cliPath},
			Cmd:        args,
			Networks:   []string{networkName},
			Files:      files,
			WaitingFor: wait.ForExit().WithExitTimeout(exitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start cli container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}
	defer logs.Close()

	output, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read cli state: %v", err)
	}

	return state.ExitCode, string(output)
}
