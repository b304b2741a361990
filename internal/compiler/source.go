package compiler

// DefaultModule is the module text a session starts with. It exports main,
// which returns 15.
const DefaultModule = `(module
  (export "main" (func $main))
  (func $main (result i32) (local $x i32) (local $y i32)
    (local.set $x (i32.const 5))
    (local.set $y (i32.const 10))
    (i32.add
      (local.get $x)
      (local.get $y)
    )
  )
)`
