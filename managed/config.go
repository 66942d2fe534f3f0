package managed

type Config struct {
	// ProtectedFields are top-level fields stored as bcrypt hashes.
	ProtectedFields []string `envconfig:"MANAGED_PROTECTED_FIELDS" default:"password" yaml:"protected_fields"`
}
