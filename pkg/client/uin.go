package client

// Code2Uin converts a group code to the group uin used by legacy commands.
func Code2Uin(code int64) int64 {
    left := code / 1000000
    switch {
    case left >= 0 && left <= 10:
        left += 202
    case left >= 11 && left <= 19:
        left += 469
    case left >= 20 && left <= 66:
        left += 2080
    case left >= 67 && left <= 156:
        left += 1943
    case left >= 157 && left <= 209:
        left += 1990
    case left >= 210 && left <= 309:
        left += 3890
    case left >= 310 && left <= 335:
        left += 3490
    case left >= 336 && left <= 386:
        left += 2265
    case left >= 387 && left <= 499:
        left += 3490
    }
    return left*1000000 + code%1000000
}

// Uin2Code is the inverse of Code2Uin.
func Uin2Code(uin int64) int64 {
    left := uin / 1000000
    switch {
    case left >= 202 && left <= 212:
        left -= 202
    case left >= 480 && left <= 488:
        left -= 469
    case left >= 2100 && left <= 2146:
        left -= 2080
    case left >= 2010 && left <= 2099:
        left -= 1943
    case left >= 2147 && left <= 2199:
        left -= 1990
    case left >= 2600 && left <= 2651:
        left -= 2265
    case left >= 3800 && left <= 3989:
        left -= 3490
    case left >= 4100 && left <= 4199:
        left -= 3890
    }
    return left*1000000 + uin%1000000
}
