package redis

import goredis "github.com/redis/go-redis/v9"

// Every script receives the key prefix as ARGV[1]. Records live in
// <prefix>user:<id> hashes with the fields status and partner ("0" when
// unset); <prefix>users indexes ids, <prefix>searching orders searchers by
// <prefix>seq and <prefix>coupled holds coupled ids.
//
// Scripts build their keys from the prefix, and KEYS[1] (<prefix>users) is
// only passed for routing. This is safe on a standalone server; on a cluster
// the prefix must carry a hash tag such as DefaultPrefix does, so all keys
// share the slot of KEYS[1].

const ensureUser = `
local function ensure(p, id)
  local key = p .. 'user:' .. id
  if redis.call('SADD', p .. 'users', id) == 1 then
    redis.call('HSET', key, 'status', 'idle', 'partner', '0')
  end
  return key
end
`

var getScript = goredis.NewScript(ensureUser + `
local key = ensure(ARGV[1], ARGV[2])
return redis.call('HMGET', key, 'status', 'partner')
`)

// setScript applies ARGV[3] when ARGV[4] is empty or equals the current status.
var setScript = goredis.NewScript(ensureUser + `
local p, id, to, from = ARGV[1], ARGV[2], ARGV[3], ARGV[4]
local key = ensure(p, id)
if from ~= '' and redis.call('HGET', key, 'status') ~= from then
  return 0
end
redis.call('HSET', key, 'status', to, 'partner', '0')
redis.call('SREM', p .. 'coupled', id)
if to == 'in_search' then
  redis.call('ZADD', p .. 'searching', redis.call('INCR', p .. 'seq'), id)
else
  redis.call('ZREM', p .. 'searching', id)
end
return 1
`)

var coupleScript = goredis.NewScript(`
local p, id = ARGV[1], ARGV[2]
local key = p .. 'user:' .. id
if redis.call('HGET', key, 'status') ~= 'in_search' then
  return 0
end
local other = nil
for _, c in ipairs(redis.call('ZRANGE', p .. 'searching', 0, 1)) do
  if c ~= id then
    other = c
    break
  end
end
if not other then
  return 0
end
redis.call('ZREM', p .. 'searching', id, other)
redis.call('HSET', key, 'status', 'coupled', 'partner', other)
redis.call('HSET', p .. 'user:' .. other, 'status', 'coupled', 'partner', id)
redis.call('SADD', p .. 'coupled', id, other)
return tonumber(other)
`)

// uncoupleScript returns {former partner, 1 if the pair was live}.
var uncoupleScript = goredis.NewScript(`
local p, id = ARGV[1], ARGV[2]
local key = p .. 'user:' .. id
local cur = redis.call('HMGET', key, 'status', 'partner')
if cur[1] ~= 'coupled' then
  return {0, 0}
end
redis.call('HSET', key, 'status', 'idle', 'partner', '0')
redis.call('SREM', p .. 'coupled', id)
local partner = cur[2]
if not partner or partner == '0' then
  return {0, 0}
end
local pkey = p .. 'user:' .. partner
local other = redis.call('HMGET', pkey, 'status', 'partner')
if other[1] ~= 'coupled' or other[2] ~= id then
  return {tonumber(partner), 0}
end
redis.call('HSET', pkey, 'status', 'partner_left', 'partner', '0')
redis.call('SREM', p .. 'coupled', partner)
return {tonumber(partner), 1}
`)

var resetScript = goredis.NewScript(`
local p = ARGV[1]
local ids = redis.call('SMEMBERS', p .. 'users')
for _, id in ipairs(ids) do
  redis.call('HSET', p .. 'user:' .. id, 'status', 'idle', 'partner', '0')
end
redis.call('DEL', p .. 'searching', p .. 'coupled')
return #ids
`)
