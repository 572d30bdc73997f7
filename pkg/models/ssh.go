package models

// SSHConfig holds the connection settings used to reach the agent of a host.
type SSHConfig struct {
	// Host address (IP or hostname). Filled from the host address when empty.
	Host string `yaml:"host" json:"host"`

	// Port number (default: 22)
	Port int `yaml:"port" json:"port"`

	Username string `yaml:"username" json:"username"`

	// Password-based authentication
	Password string `yaml:"password" json:"password"`

	// Key-based authentication (path to private key file)
	PrivateKeyPath string `yaml:"private_key_path" json:"private_key_path"`

	// Private key content (alternative to PrivateKeyPath)
	PrivateKey []byte `yaml:"-" json:"-"`

	// Passphrase for encrypted private key (if applicable)
	KeyPassphrase string `yaml:"key_passphrase" json:"key_passphrase"`

	// known_hosts file used to verify the host key. Host keys are not
	// checked when empty.
	KnownHostsPath string `yaml:"known_hosts_path" json:"known_hosts_path"`

	// Timeout in seconds for connection establishment and command execution
	Timeout int `yaml:"timeout" json:"timeout"`

	// Command that prints the agent output on the remote side
	AgentCommand string `yaml:"agent_command" json:"agent_command"`
}

// DefaultAgentCommand is run on the remote host when no command is configured.
const DefaultAgentCommand = "check_mk_agent"

// ApplyDefaults fills unset fields with their defaults.
func (c *SSHConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.AgentCommand == "" {
		c.AgentCommand = DefaultAgentCommand
	}
}
