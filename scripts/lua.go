// Package scripts implements the ten atomic state scripts spec.md §4.1
// defines over the Redis-backed store/queue: id_add, id_position,
// id_remove, id_promote, store_promote, store_promote_n, queue_timeout,
// store_timeout, has_ids, and check_sync_keys.
//
// Each script is a self-contained Lua text that RedisExecutor loads
// with SCRIPT LOAD and runs with EVALSHA, reloading once on NOSCRIPT
// (generalizing the teacher's Eval in redis/distributed.go's Release),
// so Redis treats every call as a single atomic step with no
// interleaving between concurrent front-ends.
//
// Key layout, all under a caller-supplied prefix (KEYS[1]):
//
//	prefix:store_ids             Set      admitted session IDs
//	prefix:store_expiry_secs     Hash     id -> epoch-seconds expiry
//	prefix:queue_ids             List     waiting session IDs, FIFO
//	prefix:queue_expiry_secs     Hash     id -> epoch-seconds expiry
//	prefix:queue_position_cache  Hash     id -> last-known 1-based position
//	prefix:store_capacity        String   integer; missing/unparseable = -1 (unbounded)
//	prefix:queue_enabled         String   sync marker
//	prefix:queue_sync_timestamp  String   sync marker
package scripts

// capacityLookup is duplicated verbatim into every script body that
// needs it, since Redis Lua scripts are independent EVAL texts with no
// shared module system (no FUNCTION LOAD assumed — targets plain
// Redis, not only 7.0+).
const capacityLookup = `
local cap_raw = redis.call('GET', cap_key)
local capacity
if cap_raw == false then
  capacity = -1
else
  capacity = tonumber(cap_raw)
  if capacity == nil then capacity = -1 end
end
`

const idAddSource = `
local prefix = KEYS[1]
local id = ARGV[1]
local now = tonumber(ARGV[2])
local validated = tonumber(ARGV[3])
local quarantine = tonumber(ARGV[4])

local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'
local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'
local cap_key = prefix .. ':store_capacity'

if redis.call('SISMEMBER', store_ids_key, id) == 1 then
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return 0
end

local cached = redis.call('HGET', queue_pos_key, id)
if cached then
  redis.call('HSET', queue_exp_key, id, tostring(now + quarantine))
  return tonumber(cached)
end
` + capacityLookup + `
if capacity < 0 then
  redis.call('SADD', store_ids_key, id)
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return 0
end

local slen = redis.call('SCARD', store_ids_key)
local qlen = redis.call('LLEN', queue_ids_key)
if qlen == 0 and slen < capacity then
  redis.call('SADD', store_ids_key, id)
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return 0
end

redis.call('RPUSH', queue_ids_key, id)
local pos = redis.call('LLEN', queue_ids_key)
redis.call('HSET', queue_pos_key, id, pos)
redis.call('HSET', queue_exp_key, id, tostring(now + quarantine))
return pos
`

const idPositionSource = `
local prefix = KEYS[1]
local id = ARGV[1]
local now = tonumber(ARGV[2])
local validated = tonumber(ARGV[3])
local quarantine = tonumber(ARGV[4])

local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'
local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'
local cap_key = prefix .. ':store_capacity'

if redis.call('SISMEMBER', store_ids_key, id) == 1 then
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return {0, 0}
end

local cached = redis.call('HGET', queue_pos_key, id)
if cached then
  -- any successful touch upgrades a queued id to validated expiry
  redis.call('HSET', queue_exp_key, id, tostring(now + validated))
  return {0, tonumber(cached)}
end
` + capacityLookup + `
if capacity < 0 then
  redis.call('SADD', store_ids_key, id)
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return {1, 0}
end

local slen = redis.call('SCARD', store_ids_key)
local qlen = redis.call('LLEN', queue_ids_key)
if qlen == 0 and slen < capacity then
  redis.call('SADD', store_ids_key, id)
  redis.call('HSET', store_exp_key, id, tostring(now + validated))
  return {1, 0}
end

redis.call('RPUSH', queue_ids_key, id)
local pos = redis.call('LLEN', queue_ids_key)
redis.call('HSET', queue_pos_key, id, pos)
redis.call('HSET', queue_exp_key, id, tostring(now + quarantine))
return {1, pos}
`

const idRemoveSource = `
local prefix = KEYS[1]
local id = ARGV[1]
local now = tonumber(ARGV[2])

local queue_exp_key = prefix .. ':queue_expiry_secs'
local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'

if redis.call('HEXISTS', queue_exp_key, id) == 1 then
  redis.call('HSET', queue_exp_key, id, tostring(now - 1))
  return 1
end

redis.call('SREM', store_ids_key, id)
redis.call('HDEL', store_exp_key, id)
return 1
`

const idPromoteSource = `
local prefix = KEYS[1]
local id = ARGV[1]
local now = tonumber(ARGV[2])
local validated = tonumber(ARGV[3])

local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'
local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'

local all = redis.call('LRANGE', queue_ids_key, 0, -1)
for i, v in ipairs(all) do
  if v == id then
    redis.call('LREM', queue_ids_key, 1, id)
    break
  end
end
redis.call('HDEL', queue_pos_key, id)
redis.call('HDEL', queue_exp_key, id)

redis.call('SADD', store_ids_key, id)
redis.call('HSET', store_exp_key, id, tostring(now + validated))
return 1
`

const storePromoteSource = `
local prefix = KEYS[1]

local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'
local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'
local cap_key = prefix .. ':store_capacity'
` + capacityLookup + `
local qlen = redis.call('LLEN', queue_ids_key)
local transfer
if capacity < 0 then
  transfer = qlen
else
  local slen = redis.call('SCARD', store_ids_key)
  transfer = capacity - slen
  if transfer < 0 then transfer = 0 end
end

local moved = 0
for i = 1, transfer do
  local id = redis.call('LPOP', queue_ids_key)
  if not id then break end
  local exp = redis.call('HGET', queue_exp_key, id)
  redis.call('HDEL', queue_pos_key, id)
  redis.call('HDEL', queue_exp_key, id)
  redis.call('SADD', store_ids_key, id)
  if exp then
    redis.call('HSET', store_exp_key, id, exp)
  end
  moved = moved + 1
end

return moved
`

const storePromoteNSource = `
local prefix = KEYS[1]
local n = tonumber(ARGV[1])

local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'
local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'

local moved = 0
for i = 1, n do
  local id = redis.call('LPOP', queue_ids_key)
  if not id then break end
  local exp = redis.call('HGET', queue_exp_key, id)
  redis.call('HDEL', queue_pos_key, id)
  redis.call('HDEL', queue_exp_key, id)
  redis.call('SADD', store_ids_key, id)
  if exp then
    redis.call('HSET', store_exp_key, id, exp)
  end
  moved = moved + 1
end
return moved
`

const queueTimeoutSource = `
local prefix = KEYS[1]
local now = tonumber(ARGV[1])

local queue_ids_key = prefix .. ':queue_ids'
local queue_exp_key = prefix .. ':queue_expiry_secs'
local queue_pos_key = prefix .. ':queue_position_cache'

local all = redis.call('LRANGE', queue_ids_key, 0, -1)
local survivors = {}
local removed = 0

for i, id in ipairs(all) do
  local exp = redis.call('HGET', queue_exp_key, id)
  local expNum = tonumber(exp)
  if exp and expNum and expNum < now then
    redis.call('HDEL', queue_exp_key, id)
    redis.call('HDEL', queue_pos_key, id)
    removed = removed + 1
  else
    table.insert(survivors, id)
  end
end

redis.call('DEL', queue_ids_key)
if #survivors > 0 then
  redis.call('RPUSH', queue_ids_key, unpack(survivors))
end
for i, id in ipairs(survivors) do
  redis.call('HSET', queue_pos_key, id, i)
end

return removed
`

const storeTimeoutSource = `
local prefix = KEYS[1]
local now = tonumber(ARGV[1])

local store_ids_key = prefix .. ':store_ids'
local store_exp_key = prefix .. ':store_expiry_secs'

local ids = redis.call('SMEMBERS', store_ids_key)
local removed = 0
for i, id in ipairs(ids) do
  local exp = redis.call('HGET', store_exp_key, id)
  local expNum = tonumber(exp)
  if exp and expNum and expNum < now then
    redis.call('SREM', store_ids_key, id)
    redis.call('HDEL', store_exp_key, id)
    removed = removed + 1
  end
end
return removed
`

// hasIdsSource and checkSyncKeysSource both key off the same three
// sync markers: an empty store/queue is indistinguishable from a
// never-initialized one once Redis auto-deletes an emptied Set/List,
// so "confirmed empty" vs. "needs re-init" is decided by whether the
// sync markers exist, not by the store/queue keys themselves.
const hasIdsSource = `
local prefix = KEYS[1]
local store_ids_key = prefix .. ':store_ids'
local queue_ids_key = prefix .. ':queue_ids'
local enabled_key = prefix .. ':queue_enabled'
local cap_key = prefix .. ':store_capacity'
local sync_key = prefix .. ':queue_sync_timestamp'

local initialized = redis.call('EXISTS', enabled_key) == 1
  and redis.call('EXISTS', cap_key) == 1
  and redis.call('EXISTS', sync_key) == 1

if not initialized then
  return 1
end

local slen = redis.call('SCARD', store_ids_key)
local qlen = redis.call('LLEN', queue_ids_key)
if slen > 0 or qlen > 0 then
  return 1
end
return 0
`

const checkSyncKeysSource = `
local prefix = KEYS[1]
local enabled_key = prefix .. ':queue_enabled'
local cap_key = prefix .. ':store_capacity'
local sync_key = prefix .. ':queue_sync_timestamp'

if redis.call('EXISTS', enabled_key) == 1
  and redis.call('EXISTS', cap_key) == 1
  and redis.call('EXISTS', sync_key) == 1 then
  return 1
end
return 0
`
