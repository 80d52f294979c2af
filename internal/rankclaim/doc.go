// Package rankclaim assigns group ranks to processes through a JetStream KV bucket.
//
// Each process tries to create the keys rank-0, rank-1, ... rank-(P-1) in order
// and keeps the first one whose Create succeeds. KV Create is atomic, so two
// processes never hold the same rank. Claims carry the bucket TTL, so ranks left
// behind by a crashed process become free again once the TTL expires.
package rankclaim
