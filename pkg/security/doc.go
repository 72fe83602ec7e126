/*
Package security provides cryptographic primitives for clustercore: AES-256-GCM
encryption of migration package contents and cluster secrets, SHA-256 hashing
of cluster auth tokens, and an X.509 certificate authority for optional mTLS
on the cluster-internal HTTP surface.

# Encryption

Encrypt/Decrypt on a SecretsManager perform AES-256-GCM with the
96-bit nonce prepended to the ciphertext:

	[nonce (12 bytes) || ciphertext || tag (16 bytes)]

A SecretsManager is bound to a 32-byte key, either supplied directly or
derived from a password via SHA-256. GenerateKey produces a fresh per-export
key for migration package encryption (§4.6); DeriveKeyFromClusterID derives a
deterministic key from a cluster-wide string. The package-level
Encrypt/Decrypt/SetClusterEncryptionKey helpers operate on a single
process-wide key, used by the CA to encrypt its root private key at rest
and by the migration pipeline to wrap per-export keys and for
RemoteInstance API key storage. No code in this module outside tests
calls SetClusterEncryptionKey; until it is called, Encrypt and Decrypt
return an error.

HashClusterToken returns the hex SHA-256 of a raw cluster join token — the
only form Node.ClusterTokenHash ever stores; the raw token is never
persisted or logged.

# Certificate Authority

CertAuthority issues a self-signed 10-year root CA (RSA-4096) and 90-day
node/client leaf certificates (RSA-2048) for mutual TLS between cluster
nodes on the cluster-internal surface. The root key is stored encrypted
(via the package-level cluster key) in the Store's "cluster_ca" bucket.
CertNeedsRotation flags certificates within 30 days of expiry.

# See Also

  - pkg/storage — persists the encrypted CA material
  - pkg/migration — uses GenerateKey/Encrypt for package encryption (§4.6)
  - pkg/registry — uses HashClusterToken when validating node join requests
*/
package security
